package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete ccmemory configuration (§1.3).
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	Capture     CaptureConfig     `yaml:"capture" json:"capture"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Tools       ToolsConfig       `yaml:"tools" json:"tools"`
	Session     SessionConfig     `yaml:"session" json:"session"`
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Submodules  SubmoduleConfig   `yaml:"submodules" json:"submodules"`
}

// PathsConfig configures which paths to include and exclude from the code indexer.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// StorageConfig configures the SQLite-backed store (§6.4).
type StorageConfig struct {
	// Path is the SQLite database file. Empty means "derive from the
	// runtime directory" (<runtime_dir>/ccmemory.db).
	Path string `yaml:"path" json:"path"`
	// BusyTimeout bounds how long a writer waits on SQLITE_BUSY before
	// giving up (store.BusyTimeout mirrors this as the hardcoded default).
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// EmbeddingConfig configures the embedding provider (§4.2).
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" json:"provider"` // "ollama" or "static"
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
}

// CaptureConfig configures the extraction pipeline's hook handling and
// accumulator bounds (§4.6, §6.1).
type CaptureConfig struct {
	MaxPrompts       int           `yaml:"max_prompts" json:"max_prompts"`
	MaxFilesRead     int           `yaml:"max_files_read" json:"max_files_read"`
	MaxFilesModified int           `yaml:"max_files_modified" json:"max_files_modified"`
	MaxCommands      int           `yaml:"max_commands" json:"max_commands"`
	MaxErrors        int           `yaml:"max_errors" json:"max_errors"`
	MaxSearches      int           `yaml:"max_searches" json:"max_searches"`
	UserPromptTimeout time.Duration `yaml:"user_prompt_timeout" json:"user_prompt_timeout"`
	PostToolTimeout   time.Duration `yaml:"post_tool_timeout" json:"post_tool_timeout"`
	WatchDebounce     time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// SearchConfig configures hybrid search parameters (§4.5).
// Weights and RRF constant are configurable via:
//  1. User config (~/.config/ccmemory/config.yaml) - personal defaults
//  2. Project config (.ccmemory.yaml) - per-repo tuning
//  3. Env vars (CCMEMORY_BM25_WEIGHT, CCMEMORY_SEMANTIC_WEIGHT, CCMEMORY_RRF_CONSTANT) - highest priority
type SearchConfig struct {
	// BM25Weight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// SemanticWeight is the weight for semantic similarity (0.0-1.0).
	// Must sum to 1.0 with BM25Weight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Default: 60 (industry standard used by Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// SectorBonus adds a flat score bonus to results in the session's
	// active sector relative to other sectors (§4.5 sector weighting).
	SectorBonus float64 `yaml:"sector_bonus" json:"sector_bonus"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults   int `yaml:"max_results" json:"max_results"`
}

// ToolsConfig controls which tool-API operations (§6.2) are exposed.
type ToolsConfig struct {
	// Enabled lists the tool names available through the JSON tool API.
	// Empty means every known tool is enabled.
	Enabled []string `yaml:"enabled" json:"enabled"`
}

// SessionConfig configures session lifecycle behavior (§4.9).
type SessionConfig struct {
	// GraceWindow is how long a session may sit with no recorded
	// activity before SweepStaleSessions auto-closes it.
	GraceWindow time.Duration `yaml:"grace_window" json:"grace_window"`
	// AutoClose enables the stale-session sweep. Default: true.
	AutoClose bool `yaml:"auto_close" json:"auto_close"`
}

// CoordinatorConfig configures the multi-instance coordinator (§4.9).
type CoordinatorConfig struct {
	// RuntimeDir roots server.lock, clients.txt and the events/ directory.
	// Empty derives it from the OS-specific runtime directory.
	RuntimeDir string `yaml:"runtime_dir" json:"runtime_dir"`
	// SweepInterval is loaded and merged like the other fields, but the
	// coordinator package does not read it: its sweep loop runs on the
	// fixed coordinator.SweepInterval constant (5s).
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
	Quantization  string `yaml:"quantization" json:"quantization"`
}

// SubmoduleConfig configures git submodule discovery.
type SubmoduleConfig struct {
	// Enabled enables submodule discovery (default: false, opt-in).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Recursive enables discovery of nested submodules (default: true).
	Recursive bool `yaml:"recursive" json:"recursive"`
	// Include specifies submodules to include (empty = all).
	Include []string `yaml:"include" json:"include"`
	// Exclude specifies submodules to exclude.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Storage: StorageConfig{
			Path:        "", // empty derives from the runtime directory
			BusyTimeout: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   "", // empty triggers auto-detection: Ollama -> static fallback
			Model:      "qwen3-embedding:8b",
			Dimensions: 0, // auto-detect from embedder
			BatchSize:  32,
			Timeout:    30 * time.Second,
			OllamaHost: "", // empty uses default http://localhost:11434
		},
		Capture: CaptureConfig{
			MaxPrompts:        200,
			MaxFilesRead:      100,
			MaxFilesModified:  100,
			MaxCommands:       50,
			MaxErrors:         20,
			MaxSearches:       50,
			UserPromptTimeout: 30 * time.Second,
			PostToolTimeout:   10 * time.Second,
			WatchDebounce:     500 * time.Millisecond,
		},
		Search: SearchConfig{
			BM25Weight:     0.5,
			SemanticWeight: 0.5,
			RRFConstant:    60,
			SectorBonus:    0.05,
			ChunkSize:      1500,
			ChunkOverlap:   200,
			MaxResults:     20,
		},
		Tools: ToolsConfig{
			Enabled: nil, // nil means every known tool is enabled
		},
		Session: SessionConfig{
			GraceWindow: 4 * time.Hour,
			AutoClose:   true,
		},
		Coordinator: CoordinatorConfig{
			RuntimeDir:    defaultRuntimeDir(),
			SweepInterval: 5 * time.Minute,
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			IndexWorkers:  runtime.NumCPU(),
			CacheSize:     1000,
			SQLiteCacheMB: 64,
			Quantization:  "F16",
		},
		Submodules: SubmoduleConfig{
			Enabled:   false,
			Recursive: true,
			Include:   nil,
			Exclude:   nil,
		},
	}
}

// defaultRuntimeDir returns the default directory for runtime coordination
// files (server.lock, clients.txt, events/).
func defaultRuntimeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ccmemory", "run")
	}
	return filepath.Join(home, ".ccmemory", "run")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ccmemory/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ccmemory/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccmemory", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ccmemory", "config.yaml")
	}
	return filepath.Join(home, ".config", "ccmemory", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ccmemory/config.yaml)
//  3. Project config (.ccmemory.yaml in project root)
//  4. Environment variables (CCMEMORY_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .ccmemory.yaml or .ccmemory.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".ccmemory.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".ccmemory.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Storage
	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}
	if other.Storage.BusyTimeout != 0 {
		c.Storage.BusyTimeout = other.Storage.BusyTimeout
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Timeout != 0 {
		c.Embedding.Timeout = other.Embedding.Timeout
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}

	// Capture
	if other.Capture.MaxPrompts != 0 {
		c.Capture.MaxPrompts = other.Capture.MaxPrompts
	}
	if other.Capture.MaxFilesRead != 0 {
		c.Capture.MaxFilesRead = other.Capture.MaxFilesRead
	}
	if other.Capture.MaxFilesModified != 0 {
		c.Capture.MaxFilesModified = other.Capture.MaxFilesModified
	}
	if other.Capture.MaxCommands != 0 {
		c.Capture.MaxCommands = other.Capture.MaxCommands
	}
	if other.Capture.MaxErrors != 0 {
		c.Capture.MaxErrors = other.Capture.MaxErrors
	}
	if other.Capture.MaxSearches != 0 {
		c.Capture.MaxSearches = other.Capture.MaxSearches
	}
	if other.Capture.UserPromptTimeout != 0 {
		c.Capture.UserPromptTimeout = other.Capture.UserPromptTimeout
	}
	if other.Capture.PostToolTimeout != 0 {
		c.Capture.PostToolTimeout = other.Capture.PostToolTimeout
	}
	if other.Capture.WatchDebounce != 0 {
		c.Capture.WatchDebounce = other.Capture.WatchDebounce
	}

	// Search weights and RRF constant
	// Note: 0 is not a practical value for weights, so we only merge non-zero values
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.SectorBonus != 0 {
		c.Search.SectorBonus = other.Search.SectorBonus
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Tools
	if len(other.Tools.Enabled) > 0 {
		c.Tools.Enabled = other.Tools.Enabled
	}

	// Session
	if other.Session.GraceWindow != 0 {
		c.Session.GraceWindow = other.Session.GraceWindow
	}
	if other.Session.GraceWindow != 0 || other.Session.AutoClose {
		c.Session.AutoClose = other.Session.AutoClose
	}

	// Coordinator
	if other.Coordinator.RuntimeDir != "" {
		c.Coordinator.RuntimeDir = other.Coordinator.RuntimeDir
	}
	if other.Coordinator.SweepInterval != 0 {
		c.Coordinator.SweepInterval = other.Coordinator.SweepInterval
	}

	// Performance
	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}
	if other.Performance.Quantization != "" {
		c.Performance.Quantization = other.Performance.Quantization
	}

	// Submodules
	if other.Submodules.Enabled {
		c.Submodules.Enabled = other.Submodules.Enabled
	}
	if len(other.Submodules.Include) > 0 || len(other.Submodules.Exclude) > 0 || other.Submodules.Enabled {
		c.Submodules.Recursive = other.Submodules.Recursive
	}
	if len(other.Submodules.Include) > 0 {
		c.Submodules.Include = other.Submodules.Include
	}
	if len(other.Submodules.Exclude) > 0 {
		c.Submodules.Exclude = other.Submodules.Exclude
	}
}

// applyEnvOverrides applies CCMEMORY_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CCMEMORY_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("CCMEMORY_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("CCMEMORY_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}

	if v := os.Getenv("CCMEMORY_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CCMEMORY_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CCMEMORY_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("CCMEMORY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CCMEMORY_RUNTIME_DIR"); v != "" {
		c.Coordinator.RuntimeDir = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}

	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}

	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .ccmemory.yaml/.yml file by walking up the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".ccmemory.yaml")) ||
			fileExists(filepath.Join(currentDir, ".ccmemory.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"} // Next.js, etc.

	var found []string

	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}

	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string

	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break
		}
	}

	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}

	sum := c.Search.BM25Weight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}

	if c.Embedding.Provider != "" { // empty string triggers auto-detection
		validProviders := map[string]bool{"static": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'ollama', 'static', or empty (auto-detect), got %s", c.Embedding.Provider)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.BM25Weight == 0 {
		c.Search.BM25Weight = defaults.Search.BM25Weight
		added = append(added, "search.bm25_weight")
	}
	if c.Search.SemanticWeight == 0 {
		c.Search.SemanticWeight = defaults.Search.SemanticWeight
		added = append(added, "search.semantic_weight")
	}
	if c.Search.RRFConstant == 0 {
		c.Search.RRFConstant = defaults.Search.RRFConstant
		added = append(added, "search.rrf_constant")
	}

	if c.Performance.SQLiteCacheMB == 0 {
		c.Performance.SQLiteCacheMB = defaults.Performance.SQLiteCacheMB
		added = append(added, "performance.sqlite_cache_mb")
	}

	if c.Session.GraceWindow == 0 {
		c.Session.GraceWindow = defaults.Session.GraceWindow
		added = append(added, "session.grace_window")
	}
	if c.Coordinator.RuntimeDir == "" {
		c.Coordinator.RuntimeDir = defaults.Coordinator.RuntimeDir
		added = append(added, "coordinator.runtime_dir")
	}

	return added
}
