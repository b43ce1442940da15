package config

// Merge takes a struct indicating which configuration options have been provided on the command
// line, as well as a configuration struct parsed from the command line which ALSO includes defaults
// that the user didn't specify. For example the default port is 8080 and if you don't specify
// that on the command line - it gets defaulted into the parsed configuration struct. So:
//
//  1. User provided a value: overwrite current config using the user's value
//  2. User did not provide a value, current config is unspecified: use the default in the parsed config
//  3. User did not provide a value, current config is specified: leave the current config untouched
func Merge(fromCmdline FromCmdLine, cfg Configuration) {
	mu.Lock()
	defer mu.Unlock()
	if fromCmdline.LogLevel || config.LogLevel == "" {
		config.LogLevel = cfg.LogLevel
	}
	if fromCmdline.LogFile || config.LogFile == "" {
		config.LogFile = cfg.LogFile
	}
	if fromCmdline.ConfigFile || config.ConfigFile == "" {
		config.ConfigFile = cfg.ConfigFile
	}
	if fromCmdline.CachePath || config.CachePath == "" {
		config.CachePath = cfg.CachePath
	}
	if fromCmdline.CacheVersion || config.CacheVersion == 0 {
		config.CacheVersion = cfg.CacheVersion
	}
	if fromCmdline.MemoryCacheBytes || config.MemoryCacheBytes == 0 {
		config.MemoryCacheBytes = cfg.MemoryCacheBytes
	}
	if fromCmdline.DiskCacheBytes || config.DiskCacheBytes == 0 {
		config.DiskCacheBytes = cfg.DiskCacheBytes
	}
	if fromCmdline.FetchTimeout || config.FetchTimeout == "" {
		config.FetchTimeout = cfg.FetchTimeout
	}
	if fromCmdline.Workers || config.Workers == 0 {
		config.Workers = cfg.Workers
	}
	if fromCmdline.Port || config.Port == 0 {
		config.Port = cfg.Port
	}
	if fromCmdline.Metrics || config.Metrics == 0 {
		config.Metrics = cfg.Metrics
	}
	if fromCmdline.Health || config.Health == 0 {
		config.Health = cfg.Health
	}
	if fromCmdline.PreloadFile || config.PreloadFile == "" {
		config.PreloadFile = cfg.PreloadFile
	}
	if fromCmdline.UserAgent || config.UserAgent == "" {
		config.UserAgent = cfg.UserAgent
	}
	if fromCmdline.ListConfig || config.ListConfig == (ListConfig{}) {
		config.ListConfig = cfg.ListConfig
	}
}
