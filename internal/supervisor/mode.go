package supervisor

import "github.com/JonMunkholm/erpserver/internal/config"

// Mode is the startup variant. Exactly one applies per process run and only
// ModeServe starts services.
type Mode int

const (
	ModeServe Mode = iota
	ModeStopAfterInit
	ModeExportTranslations
	ModeImportTranslations
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeStopAfterInit:
		return "stop-after-init"
	case ModeExportTranslations:
		return "export-translations"
	case ModeImportTranslations:
		return "import-translations"
	default:
		return "unknown"
	}
}

// ModeFor selects the startup variant. Translation export wins over import,
// and both win over stop-after-init.
func ModeFor(cfg *config.Config) Mode {
	switch {
	case cfg.Translate.Out != "":
		return ModeExportTranslations
	case cfg.Translate.In != "":
		return ModeImportTranslations
	case cfg.Bootstrap.StopAfterInit:
		return ModeStopAfterInit
	default:
		return ModeServe
	}
}
