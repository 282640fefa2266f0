package config

import (
	"log"

	"github.com/joho/godotenv"
)

// LoadEnv 开发环境读 .env；线上直接用环境变量
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
}
