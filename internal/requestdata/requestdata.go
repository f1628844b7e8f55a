package requestdata

import (
	"context"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

var requestDataKey = struct{}{}

type RequestData struct {
	Auth *types.AuthContext
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// GetAuth returns the resolved auth context, or nil outside an authenticated
// request.
func GetAuth(ctx context.Context) *types.AuthContext {
	rd := GetRequestData(ctx)
	if rd == nil {
		return nil
	}
	return rd.Auth
}
