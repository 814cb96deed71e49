package endpoints

import (
	"github.com/jackzampolin/qsplit/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Document endpoints
		&SplitEndpoint{},
		&PatternsEndpoint{},
		&DetectEndpoint{},
		&HeadingsEndpoint{},

		// Book endpoints
		&IngestEndpoint{},
		&UploadIngestEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},
		&RunStageEndpoint{},
		&StageStatusEndpoint{},

		// Lock and file endpoints
		&GetLockEndpoint{},
		&AcquireLockEndpoint{},
		&ReleaseLockEndpoint{},
		&ListFilesEndpoint{},
		&GetFileEndpoint{},
		&UpdateFileEndpoint{},
		&ModificationsEndpoint{},
		&DeleteImageEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
	}
}
