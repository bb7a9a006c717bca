package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"qmakemodel/internal/core/config"
	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/shared/util"
)

type TidyMode int

const (
	// TidyLegacyDisabled only appears in old settings and is upgraded on read.
	TidyLegacyDisabled TidyMode = iota
	TidyUseDefaultChecks
	TidyUseCustomChecks
	TidyUseConfigFile
)

type ClazyMode int

const (
	ClazyUseDefaultChecks ClazyMode = iota
	ClazyUseCustomChecks
)

// TidyCheckOptions maps option names to values for one clang-tidy check.
type TidyCheckOptions map[string]string

type DiagnosticConfig struct {
	ID                     string
	DisplayName            string
	ClangOptions           []string
	UseBuildSystemWarnings bool
	TidyMode               TidyMode
	TidyChecks             string
	TidyCheckOptions       map[string]TidyCheckOptions
	ClazyMode              ClazyMode
	ClazyChecks            string
	ReadOnly               bool
}

const (
	BuiltinQuestionableID = "Builtin.Questionable"
	BuiltinBuildSystemID  = "Builtin.BuildSystem"
)

// BuiltinConfigs are the read-only configurations always offered.
func BuiltinConfigs() []DiagnosticConfig {
	return []DiagnosticConfig{
		{
			ID:           BuiltinQuestionableID,
			DisplayName:  "Checks for questionable constructs",
			ReadOnly:     true,
			ClangOptions: []string{"-Wall", "-Wextra"},
			TidyMode:     TidyUseCustomChecks,
			ClazyMode:    ClazyUseCustomChecks,
		},
		{
			ID:                     BuiltinBuildSystemID,
			DisplayName:            "Build-system warnings",
			ReadOnly:               true,
			UseBuildSystemWarnings: true,
			TidyMode:               TidyUseCustomChecks,
			ClazyMode:              ClazyUseCustomChecks,
		},
	}
}

// removedBuiltinConfigs used to ship read-only and survive as custom
// copies when a user still selects them.
func removedBuiltinConfigs() []DiagnosticConfig {
	return []DiagnosticConfig{
		{
			ID:           "Builtin.Pedantic",
			DisplayName:  "Pedantic checks",
			ReadOnly:     true,
			ClangOptions: []string{"-Wpedantic"},
			TidyMode:     TidyUseCustomChecks,
			ClazyMode:    ClazyUseCustomChecks,
		},
		{
			ID:          "Builtin.EverythingWithExceptions",
			DisplayName: "Checks for almost everything",
			ReadOnly:    true,
			ClangOptions: []string{
				"-Weverything",
				"-Wno-c++98-compat",
				"-Wno-c++98-compat-pedantic",
				"-Wno-unused-macros",
				"-Wno-newline-eof",
				"-Wno-exit-time-destructors",
				"-Wno-global-constructors",
				"-Wno-gnu-zero-variadic-macro-arguments",
				"-Wno-documentation",
				"-Wno-shadow",
				"-Wno-switch-enum",
				"-Wno-missing-prototypes",
				"-Wno-used-but-marked-unused",
			},
			TidyMode:  TidyUseCustomChecks,
			ClazyMode: ClazyUseCustomChecks,
		},
	}
}

// ConvertRemovedBuiltin returns an editable copy of a builtin that no
// longer ships, or false when id is not one of them.
func ConvertRemovedBuiltin(id string) (DiagnosticConfig, bool) {
	for _, c := range removedBuiltinConfigs() {
		if c.ID == id {
			return CreateCustomConfig(c, c.DisplayName), true
		}
	}
	return DiagnosticConfig{}, false
}

// CreateCustomConfig copies base under a fresh id and name.
func CreateCustomConfig(base DiagnosticConfig, displayName string) DiagnosticConfig {
	c := base
	c.ID = uuid.NewString()
	c.DisplayName = displayName
	c.ReadOnly = false
	c.ClangOptions = append([]string(nil), base.ClangOptions...)
	if base.TidyCheckOptions != nil {
		c.TidyCheckOptions = make(map[string]TidyCheckOptions, len(base.TidyCheckOptions))
		for check, opts := range base.TidyCheckOptions {
			copied := make(TidyCheckOptions, len(opts))
			for k, v := range opts {
				copied[k] = v
			}
			c.TidyCheckOptions[check] = copied
		}
	}
	return c
}

func (c DiagnosticConfig) IsClangTidyEnabled() bool {
	return c.TidyMode != TidyUseCustomChecks || c.TidyChecks != "-*"
}

func (c DiagnosticConfig) IsClazyEnabled() bool {
	return c.ClazyMode != ClazyUseCustomChecks || c.ClazyChecks != ""
}

// checkEnabled reports whether check is listed verbatim or covered by a
// "<prefix>-*" pattern in the tidy checks string, and not negated.
func (c DiagnosticConfig) checkEnabled(check string) bool {
	for sub := check; sub != ""; {
		idx := strings.Index(c.TidyChecks, sub)
		if idx >= 0 && (idx == 0 || c.TidyChecks[idx-1] != '-') {
			if sub == check || strings.HasPrefix(c.TidyChecks[idx+len(sub):], "-*") {
				return true
			}
		}
		cut := strings.LastIndexByte(sub, '-')
		if cut < 0 {
			break
		}
		sub = sub[:cut]
	}
	return false
}

// TidyChecksAsJSON renders the checks and the options of enabled checks in
// the inline config format clang-tidy accepts.
func (c DiagnosticConfig) TidyChecksAsJSON() string {
	var b strings.Builder
	b.WriteString("{Checks: '" + c.TidyChecks + ",-clang-diagnostic-*', CheckOptions: [")
	first := true
	for _, check := range util.SortedStringKeys(c.TidyCheckOptions) {
		if !c.checkEnabled(check) {
			continue
		}
		opts := c.TidyCheckOptions[check]
		for _, key := range util.SortedStringKeys(opts) {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString("{key: '" + check + "." + key + "', value: '" + opts[key] + "'}")
		}
	}
	b.WriteString("]}")
	return b.String()
}

// NormalizeOptions splits free-form option input on whitespace.
func NormalizeOptions(input string) []string {
	return strings.Fields(input)
}

func isValidOption(option string) bool {
	switch option {
	case "-Werror":
		return false
	case "-w", "-pedantic", "-pedantic-errors":
		return true
	}
	return strings.HasPrefix(option, "-W")
}

// ValidateClangOptions accepts warning options only. -Werror is refused.
func ValidateClangOptions(options []string, env config.ClangEnv) error {
	if env.NoDiagnosticCheck {
		return nil
	}
	for _, o := range options {
		if !isValidOption(o) {
			return errors.Newf(errors.CodeValidationError, "option %q is invalid", o)
		}
	}
	return nil
}

const (
	diagnosticConfigsArray     = "ClangDiagnosticConfigs"
	keyID                      = "id"
	keyDisplayName             = "displayName"
	keyDiagnosticOptions       = "diagnosticOptions"
	keyUseBuildSystemFlags     = "useBuildSystemFlags"
	keyTidyChecks              = "clangTidyChecks"
	keyTidyChecksOptions       = "clangTidyChecksOptions"
	keyTidyMode                = "clangTidyMode"
	keyClazyMode               = "clazyMode"
	keyClazyChecks             = "clazyChecks"
	selectedDiagnosticConfigID = "ClangDiagnosticConfig"
)

func SaveDiagnosticConfigs(ctx context.Context, s *Store, configs []DiagnosticConfig) error {
	rows := make([]map[string]string, 0, len(configs))
	for _, c := range configs {
		options, err := json.Marshal(nonNil(c.ClangOptions))
		if err != nil {
			return fmt.Errorf("encode options of %q: %w", c.ID, err)
		}
		tidyOptions, err := json.Marshal(c.TidyCheckOptions)
		if err != nil {
			return fmt.Errorf("encode tidy options of %q: %w", c.ID, err)
		}
		rows = append(rows, map[string]string{
			keyID:                  c.ID,
			keyDisplayName:         c.DisplayName,
			keyDiagnosticOptions:   string(options),
			keyUseBuildSystemFlags: strconv.FormatBool(c.UseBuildSystemWarnings),
			keyTidyMode:            strconv.Itoa(int(c.TidyMode)),
			keyTidyChecks:          c.TidyChecks,
			keyTidyChecksOptions:   string(tidyOptions),
			keyClazyMode:           strconv.Itoa(int(c.ClazyMode)),
			keyClazyChecks:         c.ClazyChecks,
		})
	}
	return s.WriteArray(ctx, diagnosticConfigsArray, rows)
}

// LoadDiagnosticConfigs reads the stored custom configurations, upgrading
// legacy records on the way.
func LoadDiagnosticConfigs(ctx context.Context, s *Store) ([]DiagnosticConfig, error) {
	rows, err := s.ReadArray(ctx, diagnosticConfigsArray)
	if err != nil {
		return nil, err
	}
	configs := make([]DiagnosticConfig, 0, len(rows))
	for i, row := range rows {
		c, err := configFromRow(row)
		if err != nil {
			return nil, errors.AddContext(err, "index", i)
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func configFromRow(row map[string]string) (DiagnosticConfig, error) {
	c := DiagnosticConfig{
		ID:          row[keyID],
		DisplayName: row[keyDisplayName],
	}
	if raw := row[keyDiagnosticOptions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.ClangOptions); err != nil {
			return c, errors.Wrap(err, errors.CodeParse, "decode diagnostic options")
		}
	}
	c.UseBuildSystemWarnings, _ = strconv.ParseBool(row[keyUseBuildSystemFlags])

	tidyMode, _ := strconv.Atoi(row[keyTidyMode])
	if TidyMode(tidyMode) == TidyLegacyDisabled {
		c.TidyMode = TidyUseCustomChecks
		c.TidyChecks = "-*"
	} else {
		c.TidyMode = TidyMode(tidyMode)
		c.TidyChecks = row[keyTidyChecks]
		if raw := row[keyTidyChecksOptions]; raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &c.TidyCheckOptions); err != nil {
				return c, errors.Wrap(err, errors.CodeParse, "decode tidy check options")
			}
		}
	}

	clazyMode, _ := strconv.Atoi(row[keyClazyMode])
	c.ClazyMode = ClazyMode(clazyMode)
	c.ClazyChecks = convertClazyChecks(row[keyClazyChecks])
	return c, nil
}

// convertClazyChecks drops the old "levelN" format, which no longer maps
// onto a check list.
func convertClazyChecks(checks string) string {
	if len(checks) == 6 && strings.HasPrefix(checks, "level") {
		return ""
	}
	return checks
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SelectedConfigID returns the configuration the code model uses,
// defaulting to the build-system warnings builtin.
func SelectedConfigID(ctx context.Context, s *Store) (string, error) {
	id, ok, err := s.Value(ctx, selectedDiagnosticConfigID)
	if err != nil {
		return "", err
	}
	if !ok || id == "" {
		return BuiltinBuildSystemID, nil
	}
	return id, nil
}

func SelectConfig(ctx context.Context, s *Store, id string) error {
	return s.SetValue(ctx, selectedDiagnosticConfigID, id)
}

// AllConfigs returns the builtins followed by the custom configurations,
// with a later entry replacing an earlier one of the same id.
func AllConfigs(custom []DiagnosticConfig) []DiagnosticConfig {
	all := BuiltinConfigs()
	for _, c := range custom {
		replaced := false
		for i := range all {
			if all[i].ID == c.ID {
				all[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			all = append(all, c)
		}
	}
	return all
}

// FindConfig looks id up among builtins and custom configurations.
func FindConfig(custom []DiagnosticConfig, id string) (DiagnosticConfig, error) {
	for _, c := range AllConfigs(custom) {
		if c.ID == id {
			return c, nil
		}
	}
	return DiagnosticConfig{}, errors.Newf(errors.CodeNotFound, "diagnostic config %q not found", id)
}

// ImportDiagnosticConfigs merges configurations given as raw settings rows,
// possibly in a legacy format, into the stored custom configurations. A row
// without an id gets a fresh one. Rows replace stored entries of the same id.
func ImportDiagnosticConfigs(ctx context.Context, s *Store, rows []map[string]string) ([]DiagnosticConfig, error) {
	stored, err := LoadDiagnosticConfigs(ctx, s)
	if err != nil {
		return nil, err
	}
	imported := make([]DiagnosticConfig, 0, len(rows))
	for i, row := range rows {
		c, err := configFromRow(row)
		if err != nil {
			return nil, errors.AddContext(err, "index", i)
		}
		if strings.TrimSpace(c.ID) == "" {
			c.ID = uuid.NewString()
		}
		if converted, ok := ConvertRemovedBuiltin(c.ID); ok {
			c = converted
		}
		imported = append(imported, c)
	}

	merged := stored
	for _, c := range imported {
		replaced := false
		for i := range merged {
			if merged[i].ID == c.ID {
				merged[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, c)
		}
	}
	if err := SaveDiagnosticConfigs(ctx, s, merged); err != nil {
		return nil, err
	}
	return imported, nil
}
