package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/oneboxhq/onebox/config"
	"github.com/oneboxhq/onebox/internal/database"
	"github.com/oneboxhq/onebox/internal/repository"
	"github.com/oneboxhq/onebox/server"
)

func main() {
	app := &cli.App{
		Name:  "onebox",
		Usage: "mailbox sync engine and searchable email index",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrations,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func databaseConfig(cfg *config.Config) *database.DatabaseConfig {
	return &database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}

	db, err := database.NewConnection(databaseConfig(cfg))
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Onebox starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	return srv.Run()
}

func runMigrations(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}

	db, err := database.NewConnection(databaseConfig(cfg))
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	if err := repository.MigrateDB(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}
