package mcp

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ProjectDetector identifies the project at a scanned root from its manifest files.
type ProjectDetector struct {
	rootPath string
	logger   *slog.Logger
}

// NewProjectDetector creates a new project detector.
func NewProjectDetector(rootPath string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{
		rootPath: rootPath,
		logger:   logger,
	}
}

// manifest pairs a file name with the project type it implies.
type manifest struct {
	file   string
	kind   string
	detect func(data []byte) string
}

var manifests = []manifest{
	{"go.mod", "go", goModuleName},
	{"package.json", "node", packageJSONName},
	{"pyproject.toml", "python", pyprojectName},
	{"Cargo.toml", "rust", cargoName},
}

// Detect returns project information for the root.
// Detection order: go.mod, package.json, pyproject.toml, Cargo.toml, then the directory name.
func (d *ProjectDetector) Detect() ProjectInfo {
	info := ProjectInfo{
		RootPath: d.rootPath,
		Name:     filepath.Base(d.rootPath),
		Type:     "unknown",
	}

	for _, m := range manifests {
		data, err := os.ReadFile(filepath.Join(d.rootPath, m.file))
		if err != nil {
			continue
		}
		name := m.detect(data)
		if name == "" {
			d.logger.Debug("manifest has no project name", slog.String("file", m.file))
			continue
		}
		info.Name = name
		info.Type = m.kind
		return info
	}
	return info
}

// goModuleName returns the last element of the module path.
func goModuleName(data []byte) string {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "module" {
			return path.Base(strings.Trim(fields[1], `"`))
		}
	}
	return ""
}

// packageJSONName returns the package name without its scope.
func packageJSONName(data []byte) string {
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	if i := strings.LastIndex(pkg.Name, "/"); strings.HasPrefix(pkg.Name, "@") && i >= 0 {
		return pkg.Name[i+1:]
	}
	return pkg.Name
}

func pyprojectName(data []byte) string {
	var doc struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return ""
	}
	if doc.Project.Name != "" {
		return doc.Project.Name
	}
	return doc.Tool.Poetry.Name
}

func cargoName(data []byte) string {
	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return ""
	}
	return doc.Package.Name
}
