package config

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch re-reads the config file named by ASKTENNIS_CONFIG whenever it is
// written and passes the new Config to fn. It returns false when there is
// no file to watch.
func Watch(fn func(*Config)) bool {
	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		return false
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("config watch disabled")
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
	return true
}
