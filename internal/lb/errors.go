package lb

import "github.com/DimaJoyti/contractfabric/pkg/errs"

// ErrNoHealthyInstances is returned by Service.Route when a contract has no
// instance registered, or none survive health filtering.
var ErrNoHealthyInstances = errs.New(errs.KindUnavailable, "lb.no_healthy_instances", "no healthy instances available for contract")

// ErrInstanceNotFound is returned by Service.RemoveInstance/RecordResult for
// an unknown instance id.
var ErrInstanceNotFound = errs.New(errs.KindNotFound, "lb.instance_not_found", "instance not found")

// ErrUnknownAlgorithm is returned by Service.SetAlgorithm for an
// unrecognized algorithm name.
var ErrUnknownAlgorithm = errs.New(errs.KindConfig, "lb.unknown_algorithm", "unknown routing algorithm")
