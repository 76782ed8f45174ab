package handlers

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"broker/pkg/apperror"
	"broker/pkg/auth"
	"broker/pkg/logger"
	"broker/pkg/report"
	"broker/services/broker-svc/internal/service"
)

// Checker проверяет зависимость для /ready
type Checker func(r *http.Request) error

// HealthHandler отвечает на /health, процесс жив
func HealthHandler(version string, startedAt time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"version":        version,
			"uptime_seconds": int64(time.Since(startedAt).Seconds()),
		})
	}
}

// ReadyHandler отвечает на /ready, все зависимости доступны
func ReadyHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, map[string]any{
			"ready":  status == http.StatusOK,
			"checks": results,
		})
	}
}

// ReportDownloadHandler отдаёт отчёт по сохранённому расчёту:
// GET /reports/{file}, где file = <id>.<ext>. tokens nil отключает авторизацию.
func ReportDownloadHandler(svc *service.BrokerService, tokens *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if tokens != nil {
			raw, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, apperror.Wrap(err, apperror.CodeUnauthenticated, err.Error()))
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeError(w, apperror.Wrap(err, apperror.CodeUnauthenticated, auth.ErrInvalidToken.Error()))
				return
			}
			ctx = auth.WithClaims(ctx, claims)
		}

		file := r.PathValue("file")
		ext := path.Ext(file)
		id := strings.TrimSuffix(file, ext)
		if id == "" || ext == "" {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidArgument,
				"expected /reports/<id>.<format>", "file"))
			return
		}

		rep, err := svc.Report(ctx, service.ReportRequest{
			CalculationID: id,
			Format:        strings.TrimPrefix(ext, "."),
			Title:         r.URL.Query().Get("title"),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", rep.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(rep.Content)))
		w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename+`"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(rep.Content); err != nil {
			logger.FromContext(ctx).Debug("Failed to write report", "error", err)
		}
	}
}

// ReportFormatsHandler перечисляет поддерживаемые форматы
func ReportFormatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"formats": report.Formats()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Логировать не можем - response уже начат отправляться
		return
	}
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Wrap(err, apperror.CodeInternal, "internal error")
	}
	writeJSON(w, httpStatus(appErr.Code), map[string]any{
		"code":    appErr.Code,
		"message": appErr.Message,
		"field":   appErr.Field,
	})
}

func httpStatus(code apperror.ErrorCode) int {
	switch code {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperror.CodePermissionDenied:
		return http.StatusForbidden
	case apperror.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperror.CodeUnimplemented:
		return http.StatusNotImplemented
	case apperror.CodeInternal, apperror.CodeReportFailed, apperror.CodeSolveFailed:
		return http.StatusInternalServerError
	case apperror.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperror.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
