// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
)

func (b *Backend) handleCompression() {

	compressionMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlers.CompressHandler(h).ServeHTTP(w, r)
		})
	}
	b.router.Use(compressionMiddleware)
}
