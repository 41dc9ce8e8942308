// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env struct tags.
// Defaults reproduce a plain relay on 127.0.0.1:7878 with no connection limits and no admin server.
package config
