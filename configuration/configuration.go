package configuration

import (
	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/collection"
)

type Configuration struct {
	HttpAddr          string `usage:"HTTP address"`
	Dir               string `usage:"data directory"`
	Database          string `usage:"name of the records database"`
	Engine            string `usage:"storage engine for collections [json|sqlite]"`
	Statics           string `usage:"statics directory, embedded statics if empty"`
	Origin            string `usage:"remote origin to cache, statics are served if empty"`
	AppVersion        string `usage:"application version, names the current cache bucket"`
	CacheMaxEntries   int    `usage:"max entries in the cache bucket"`
	FallbackPath      string `usage:"page served to offline navigations, disabled if empty"`
	InstallOnStart    bool   `usage:"install and activate the cache on start"`
	EnableCompression bool   `usage:"gzip responses when accepted by the client"`
	ApiKey            string `usage:"api key required in X-Api-Key, no auth if empty"`
	ApiSecret         string `usage:"api secret required in X-Api-Secret"`
	LogLevel          string `usage:"log level [trace|debug|info|warn|error]"`
	Version           bool   `usage:"show version and exit"`
	ShowBanner        bool   `usage:"show big banner"`
	ShowConfig        bool   `usage:"print config"`
}

func Default() *Configuration {
	return &Configuration{
		HttpAddr:        "127.0.0.1:8080",
		Dir:             "data",
		Database:        "prepaidplus",
		Engine:          collection.EngineJSON,
		AppVersion:      "dev",
		CacheMaxEntries: cachemanager.DefaultMaxEntries,
		InstallOnStart:  true,
		LogLevel:        "info",
		ShowBanner:      true,
	}
}
