package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds of config file a template exists for.
const (
	KindEnviron = "environ"
	KindLab     = "lab"
)

// LabFile holds labctl's own settings at the lab root.
const LabFile = "lab.toml"

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindEnviron:
		return environTemplate, nil
	case KindLab:
		return labTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// DefaultFile is the file name a kind is read from at the lab root.
func DefaultFile(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindEnviron:
		return EnvironFile, nil
	case KindLab:
		return LabFile, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o644)
}

const environTemplate = `[binutils]
source_dir = "/root/binutils-gdb"
build_dir_name = "binutils_build"
prefix_dir_name = "usr"
# 0 runs one make job per CPU
jobs = 0
# unpacked into the workflow's var dir when source_dir does not exist
source_archive = ""
# source_archive_top = "binutils-2.42"
cached = ["source_dir"]
`

const labTemplate = `# overridden by LOG_LEVEL
log_level = "info"
# json or text
log_format = "json"
log_timestamp = true
`
