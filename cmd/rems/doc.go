// Command rems runs the REMS web server.
//
//	rems                 # same as `rems serve`
//	rems serve --debug   # verbose error pages, debug logging
//	rems route:list
//	rems db:ping
//
// Configuration comes from the environment (and optional .env and
// config/app.json). MAIN_DB_URI defaults to sqlite:///rems.db; the server
// listens on APP_HOST:APP_PORT, 127.0.0.1:5000 by default.
package main
