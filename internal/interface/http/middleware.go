package httpservice

import (
	"net/http"
	"runtime/debug"

	"github.com/arkade-os/custodyd/internal/core/ports"
	cerrors "github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const callerHeader = "X-Caller-Address"

func callerFrom(r *http.Request) string {
	return r.Header.Get(callerHeader)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("http request: %s %s caller=%q", r.Method, r.URL.Path, callerFrom(r))
		next.ServeHTTP(w, r)
	})
}

// panicRecovery turns a panic in a handler into an INTERNAL_ERROR response and
// logs its stack trace.
func panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Errorf("panic-recovery middleware recovered from panic: %v", rec)
				log.Errorf("stack trace: %v", string(debug.Stack()))
				writeError(w, r, somethingWentWrong)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r) == "" {
			writeError(w, r, cerrors.ACCESS_DENIED.New("missing %s header", callerHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin lets through only the callers holding the admin role on the protocol.
func requireAdmin(authority ports.RoleAuthority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerFrom(r)
			ok, err := authority.HasRole(
				r.Context(), ports.ProtocolEntity, caller,
				ports.RoleAdmin, ports.AccountRoleProtocol,
			)
			if err != nil {
				writeError(w, r, cerrors.INTERNAL_ERROR.Wrap(err))
				return
			}
			if !ok {
				writeError(w, r, cerrors.ACCESS_DENIED.New("caller is not an admin").
					WithMetadata(cerrors.AccessDeniedMetadata{
						Caller: caller,
						Entity: ports.ProtocolEntity,
						Role:   ports.RoleAdmin.String(),
					}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
