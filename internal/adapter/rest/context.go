package rest

import "context"

type contextKey string

const (
	userIDCtxKey    = contextKey("user_id")
	userRoleCtxKey  = contextKey("user_role")
	requestIDCtxKey = contextKey("request_id")
)

const RoleAdmin = "admin"

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDCtxKey).(string)
	return id, ok && id != ""
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(userRoleCtxKey).(string)
	return role
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
