// Package config loads typed configuration structs from environment
// variables (caarlos0/env tags) with optional dotenv files (joho/godotenv).
//
// Each struct type is parsed once and cached:
//
//	var redisCfg redis.Config
//	if err := config.Load(&redisCfg); err != nil {
//		log.Fatal(err)
//	}
//
// LoadEnv reads additional dotenv files before the first Load; ResetCache
// forgets cached values, which tests use between cases.
package config
