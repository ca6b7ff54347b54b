// Package logging configures the process-wide zerolog logger. Console output
// is always on; when PATIENTCORE_ELASTICSEARCH_URL is set, ECS-formatted logs
// are shipped to Elasticsearch as well.
package logging

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var setupOnce sync.Once

// ElasticsearchWriter posts each log line to an Elasticsearch index endpoint.
type ElasticsearchWriter struct {
	URL string
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	resp, err := http.Post(ew.URL+"/_doc", "application/json", bytes.NewBuffer(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}
	return len(p), nil
}

// Setup installs the global logger. The app name tags every event.
//
//	PATIENTCORE_LOG_LEVEL: trace|debug|info|warn|error (default info)
//	PATIENTCORE_ELASTICSEARCH_URL: base URL, optional
func Setup(app string) {
	setupOnce.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(os.Getenv("PATIENTCORE_LOG_LEVEL")))

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}
		esURL := os.Getenv("PATIENTCORE_ELASTICSEARCH_URL")
		if esURL == "" {
			log.Logger = zerolog.New(consoleWriter).With().Str("app", app).
				Timestamp().Logger()
			return
		}

		ecsLogger := ecszerolog.New(&ElasticsearchWriter{URL: esURL + "/" + app})
		multi := zerolog.MultiLevelWriter(ecsLogger, consoleWriter)
		log.Logger = zerolog.New(multi).With().Str("app", app).
			Timestamp().Logger()
	})
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(raw) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
