// Package security locates the directory holding a node's security
// credentials.
//
// The lookup is driven by environment variables:
//   - ROS_SECURITY_NODE_DIRECTORY names the directory outright and wins over
//     everything else, provided it exists
//   - ROS_SECURITY_ROOT_DIRECTORY is the root of a tree laid out by namespace
//   - ROS_SECURITY_LOOKUP_TYPE selects MATCH_EXACT (default) or MATCH_PREFIX
//
// With a root of /keys, namespace /robot/arm and node name gripper, exact
// matching requires /keys/robot/arm/gripper to be a directory. Prefix
// matching picks the longest subdirectory of /keys/robot/arm whose name is a
// prefix of the node name, so gripper_left resolves to /keys/robot/arm/gripper.
// Parent namespaces are never searched.
//
// Example usage:
//
//	dir, err := security.NewResolver(security.OSEnvironment{}).Resolve("gripper", "/robot/arm")
//	if errors.Is(err, rcl.ErrNotFound) {
//		// run without security
//	}
//
// Resolution is a pure function of its inputs, the environment and the
// filesystem at call time. Nothing is cached.
package security
