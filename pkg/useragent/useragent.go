package useragent

import (
	"fmt"
	"runtime"

	"github.com/claude-memory/claude-memory-go/pkg/version"
)

// Header identifies this service; pkg/httpclient sends it as the User-Agent
// on every ModelGateway request.
var Header = fmt.Sprintf("claude-memory-go/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
