package opensearch

import "errors"

var (
	// ErrConnectionFailed indicates the client could not be created.
	ErrConnectionFailed = errors.New("opensearch connection failed")

	// ErrHealthcheckFailed indicates the cluster is unreachable or unhealthy.
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")

	// ErrRequestFailed wraps non-2xx responses of document requests.
	ErrRequestFailed = errors.New("opensearch request failed")
)
