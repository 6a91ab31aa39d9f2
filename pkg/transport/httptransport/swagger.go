package httptransport

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/gorilla/mux"
)

// mountSwagger serves the interactive API explorer at /docs, grounded on the
// teacher router's swaggo mount point.
func mountSwagger(router *mux.Router) {
	router.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)
}
