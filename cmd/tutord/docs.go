package main

// General API documentation for swaggo. Run `swag init -g cmd/tutord/docs.go -d ./,./internal/httpapi,./pkg/types`
// to regenerate ./docs.
//
// @title           tutord API
// @version         1.0
// @description     HTTP API for question classification and short answers from a local model.
//
// @contact.name   tutord maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
