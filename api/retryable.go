package api

import (
	"errors"
	"io"
	"net"
	"net/url"
	"slices"
	"strings"
	"syscall"
)

var retryableErrorSuffixes = []string{
	syscall.ECONNREFUSED.Error(),
	syscall.ECONNRESET.Error(),
	syscall.ETIMEDOUT.Error(),
	"no such host",
	"remote error: handshake failure",
	io.ErrUnexpectedEOF.Error(),
	io.EOF.Error(),
}

var retryableStatuses = []int{
	429, // Too Many Requests
	500, // Internal Server Error
	502, // Bad Gateway
	503, // Service Unavailable
	504, // Gateway Timeout
}

// IsRetryableStatus returns true if err is a *TransportError carrying a
// status code that's worth retrying.
func IsRetryableStatus(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Code >= 400 && slices.Contains(retryableStatuses, te.Code)
}

// IsRetryableError reports whether err looks like a transient connection
// error worth retrying, independent of any TransportError status.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var neterr net.Error
	if errors.As(err, &neterr) && neterr.Timeout() {
		return true
	}

	var urlerr *url.Error
	if errors.As(err, &urlerr) {
		if strings.Contains(urlerr.Error(), "use of closed network connection") {
			return true
		}
		var nested net.Error
		if errors.As(urlerr.Err, &nested) && nested.Timeout() {
			return true
		}
	}

	if strings.Contains(err.Error(), "request canceled while waiting for connection") {
		return true
	}

	s := err.Error()
	for _, suffix := range retryableErrorSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}

	return false
}
