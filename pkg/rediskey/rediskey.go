package rediskey

// Shared redis conventions across gateway instances.
const (
	// DomainInvalidationChannel carries hostnames whose cached binding
	// must be dropped by every gateway instance.
	DomainInvalidationChannel = "gateway:domain:invalidate"
)
