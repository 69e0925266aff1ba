package hcloud

import (
	"errors"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// isResourceLocked reports errors caused by a running action on the
// resource. These errors are retryable.
func isResourceLocked(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
	)
}

// isInvalidParameter reports errors no retry can fix.
func isInvalidParameter(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeNotFound,
		hcloud.ErrorCodeInvalidInput,
		hcloud.ErrorCodeInvalidServerType,
		hcloud.ErrorCodeUniquenessError,
	)
}

func isHCloudErrorCode(err error, codes ...hcloud.ErrorCode) bool {
	if err == nil {
		return false
	}

	var hcloudErr hcloud.Error
	if errors.As(err, &hcloudErr) {
		for _, code := range codes {
			if hcloudErr.Code == code {
				return true
			}
		}
	}
	return false
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeNotFound)
}

// IsResourceInUse reports a firewall or key still attached to a server being deleted.
func IsResourceInUse(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeResourceInUse)
}

// IsRateLimited checks if an error indicates rate limiting.
func IsRateLimited(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeRateLimitExceeded)
}

// IsTransient reports errors worth retrying at a higher level.
func IsTransient(err error) bool {
	return isResourceLocked(err) || IsRateLimited(err) ||
		isHCloudErrorCode(err, hcloud.ErrorCodeTimeout, hcloud.ErrorCodeServiceError, hcloud.ErrorCodeMaintenance)
}
