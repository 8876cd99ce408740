// Package config loads the engine's single startup configuration file
// (YAML, adopted from the manifold/Nucleus pack examples' config-loading
// style) into a Config struct, validates the fields every loader needs,
// and wraps any failure as a typed *errs.LoadError.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/siret/somhunter-go/internal/errs"
)

// FilenameOffsets mirrors catalog.FilenameOffsets, kept as its own type
// here so this package does not need to import internal/catalog just for
// a YAML-tagged struct shape.
type FilenameOffsets struct {
	FilenameOff int `yaml:"filename_off"`
	VidIDOff    int `yaml:"vid_id_off"`
	VidIDLen    int `yaml:"vid_id_len"`
	ShotIDOff   int `yaml:"shot_id_off"`
	ShotIDLen   int `yaml:"shot_id_len"`
	FrameNumOff int `yaml:"frame_num_off"`
	FrameNumLen int `yaml:"frame_num_len"`
}

// KeywordsConfig names the keyword/PCA artifact files behind the text
// ranker, per spec.md §6's kw_* table entries.
type KeywordsConfig struct {
	KwsFile       string `yaml:"kws_file"`
	ScoresMatFile string `yaml:"kw_scores_mat_file"`
	BiasVecFile   string `yaml:"kw_bias_vec_file"`
	PCAMeanFile   string `yaml:"kw_PCA_mean_vec_file"`
	PCAMatFile    string `yaml:"kw_PCA_mat_file"`
	PrePCADim     int    `yaml:"pre_PCA_features_dim"`
	PCAMatDim     int    `yaml:"kw_PCA_mat_dim"`
}

// CanvasConfig names the canvas ranker's optional collage/region
// artifacts. A missing ModelResNetFile (or any other path here) degrades
// the canvas ranker to a warning-only no-op rather than a load failure.
type CanvasConfig struct {
	ModelResNetFile        string `yaml:"model_resnet_file"`
	ModelResNextFile       string `yaml:"model_resnext_file"`
	ModelW2VVImgBiasFile   string `yaml:"model_w2vv_img_bias_file"`
	ModelW2VVImgWeightFile string `yaml:"model_w2vv_img_weights_file"`
	CollageRegionFilePfx   string `yaml:"collage_region_file_prefix"`
	CollageRegions         int    `yaml:"collage_regions"`
}

// SecondaryConfig is the optional secondary text-embedding HTTP service.
// Empty Endpoint disables the secondary ranker entirely.
type SecondaryConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EvalServerConfig is the opaque submit/eval-server sub-block; its
// fields are passed through to internal/evalclient untouched.
type EvalServerConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DatasetID   string `yaml:"dataset_id"`
	TeamID      string `yaml:"team_id"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// EventLogConfig points at the optional append-only JSON-line log root,
// per spec.md §6's "persisted state layout" note — one file per event
// category (and a canvas/ subdirectory for bitmap sidecars) underneath
// a single Dir. Empty Dir disables event logging entirely.
type EventLogConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig is the optional sqlite-backed structured event log. An
// empty Path disables persistence entirely; the engine runs in-memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Config is the engine's single startup configuration, recognized
// fields per spec.md §6's table.
type Config struct {
	UserToken           string          `yaml:"user_token"`
	MaxFrameFilenameLen int             `yaml:"max_frame_filename_len"`
	FilenameOffsets     FilenameOffsets `yaml:"filename_offsets"`

	FramesListFile  string `yaml:"frames_list_file"`
	LSCMetadataFile string `yaml:"lsc_metadata_file,omitempty"`
	FramesDir       string `yaml:"frames_dir"`
	ThumbsDir       string `yaml:"thumbs_dir"`

	FeaturesFile        string `yaml:"features_file"`
	FeaturesFileDataOff int64  `yaml:"features_file_data_off"`
	FeaturesDim         int    `yaml:"features_dim"`

	Keywords KeywordsConfig `yaml:"keywords"`
	Canvas   CanvasConfig   `yaml:"canvas,omitempty"`

	DisplayPageSize    int `yaml:"display_page_size"`
	TopNFramesPerVideo int `yaml:"topn_frames_per_video"`
	TopNFramesPerShot  int `yaml:"topn_frames_per_shot"`
	TopNCacheSize      int `yaml:"topn_cache_size"`

	SomWidth       int `yaml:"som_width"`
	SomHeight      int `yaml:"som_height"`
	SomParallelism int `yaml:"som_parallelism"`

	IndexM              int `yaml:"index_m"`
	IndexEfConstruction int `yaml:"index_ef_construction"`
	IndexEfSearch       int `yaml:"index_ef_search"`

	Secondary  SecondaryConfig  `yaml:"secondary,omitempty"`
	EvalServer EvalServerConfig `yaml:"eval_server,omitempty"`
	EventLog   EventLogConfig   `yaml:"event_log,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty"`

	LogLevel string `yaml:"log_level"`
}

// Load reads path, unmarshals it as YAML into a Config, fills in
// defaults for the fields the reference deployment always sets
// sensibly, validates the handful of fields every other loader depends
// on, and wraps any failure as a *errs.LoadError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapLoad("config.load", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.WrapLoad("config.load", fmt.Errorf("parsing %s: %w", path, err))
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, errs.WrapLoad("config.load", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DisplayPageSize <= 0 {
		cfg.DisplayPageSize = 64
	}
	if cfg.TopNCacheSize <= 0 {
		cfg.TopNCacheSize = 1000
	}
	if cfg.SomWidth <= 0 {
		cfg.SomWidth = 8
	}
	if cfg.SomHeight <= 0 {
		cfg.SomHeight = 8
	}
	if cfg.SomParallelism <= 0 {
		cfg.SomParallelism = 4
	}
	if cfg.IndexM <= 0 {
		cfg.IndexM = 16
	}
	if cfg.IndexEfConstruction <= 0 {
		cfg.IndexEfConstruction = 200
	}
	if cfg.IndexEfSearch <= 0 {
		cfg.IndexEfSearch = 64
	}
	if cfg.UserToken == "" {
		cfg.UserToken = "default"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks the fields every other loader takes on faith: paths
// required for the core to come up at all, and dimensions that must be
// positive for the matrix/keyword loaders to make sense of their files.
func (c *Config) validate() error {
	if c.FramesListFile == "" {
		return fmt.Errorf("frames_list_file is required")
	}
	if c.FeaturesFile == "" {
		return fmt.Errorf("features_file is required")
	}
	if c.FeaturesDim <= 0 {
		return fmt.Errorf("features_dim must be positive, got %d", c.FeaturesDim)
	}
	if c.FeaturesFileDataOff < 0 {
		return fmt.Errorf("features_file_data_off must be non-negative, got %d", c.FeaturesFileDataOff)
	}
	off := c.FilenameOffsets
	if off.VidIDLen <= 0 || off.ShotIDLen <= 0 || off.FrameNumLen <= 0 {
		return fmt.Errorf("filename_offsets.{vid_id,shot_id,frame_num}_len must all be positive")
	}
	return nil
}
