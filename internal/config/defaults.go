package config

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Addr:    ":8080",
			DataDir: "data",
		},
		Document: Document{
			Title:        "MAGEZ",
			Subtitle:     "Trade & Logistics Company",
			AccentColor:  "#FF0000",
			HeaderColor:  "#808080",
			ThumbnailMax: 100,
		},
		Redis: Redis{
			LockTTLSeconds: 30,
		},
		Archive: Archive{
			Backend: "local",
		},
	}
}
