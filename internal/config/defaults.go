package config

const (
	defaultDoviTool      = "dovi_tool"
	defaultMKVMerge      = "mkvmerge"
	defaultMKVExtract    = "mkvextract"
	defaultMediaInfo     = "mediainfo"
	defaultMP4Box        = "MP4Box"
	defaultHDR10PlusTool = "hdr10plus_tool"
	defaultFFmpeg        = "ffmpeg"

	defaultOutputDir  = "~/hybridmux"
	defaultScratchDir = "~/.local/share/hybridmux/scratch"
	defaultLogDir     = "~/.local/share/hybridmux/logs"
	defaultHistory    = "~/.local/share/hybridmux/history.db"

	defaultParallelism    = 4
	defaultPollIntervalMS = 500
	defaultLogLevel       = "info"

	// MaxWorkers is the absolute ceiling on concurrent pipeline workers.
	// Every worker drives external tool subprocesses, so an unbounded pool
	// can exhaust OS process limits on large batches.
	MaxWorkers = 15
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Tools: Tools{
			DoviTool:      defaultDoviTool,
			MKVMerge:      defaultMKVMerge,
			MKVExtract:    defaultMKVExtract,
			MediaInfo:     defaultMediaInfo,
			MP4Box:        defaultMP4Box,
			HDR10PlusTool: defaultHDR10PlusTool,
			FFmpeg:        defaultFFmpeg,
		},
		Paths: Paths{
			DefaultOutput: defaultOutputDir,
			ScratchDir:    defaultScratchDir,
		},
		Processing: Processing{
			Parallelism:    defaultParallelism,
			PollIntervalMS: defaultPollIntervalMS,
		},
		Logging: Logging{
			Level: defaultLogLevel,
			Dir:   defaultLogDir,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistory,
		},
	}
}
