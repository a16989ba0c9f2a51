// Package cpufeatures derives scheduler feature tags from a /proc/cpuinfo
// style dump and reconciles them with the feature lists a workload
// scheduler keeps for its nodes.
//
// Tags have the form TYPE::VALUE and are joined with commas:
//
//	VENDOR::GenuineIntel,MODEL::Gold_6248R,CACHE::28160KB,ISA::avx,ISA::avx2
//
// The VENDOR, MODEL, CACHE, ISA and PCI prefixes are owned by this package.
// Every other tag belongs to someone else and is carried through
// reconciliation untouched.
//
// # Detection
//
// Detect the features of this host once and cache them:
//
//	r, err := cpufeatures.Detect()
//	if err != nil {
//	    // r.Features is empty; treat as "nothing detected"
//	}
//	fmt.Println(r.Tags())
//
// Parse an offline dump with a specific ISA table:
//
//	r, err := cpufeatures.DetectWith(
//	    cpufeatures.WithCPUInfoPath("node042.cpuinfo.gz"),
//	    cpufeatures.WithISATable(cpufeatures.ISATableV1),
//	    cpufeatures.WithBusDetection(cpufeatures.DefaultDeviceTable,
//	        cpufeatures.DisplayControllerClass, cpufeatures.DisplayControllerClassMask),
//	)
//
// Only the first processor block is read: parsing stops at the first blank
// line. Unrecognized keys and lines whose value cannot be interpreted are
// skipped; only failing to open or read the input is an error.
//
// # Tag algebra
//
//   - [IsOwned] tells whether a tag carries one of the owned prefixes
//   - [ContainsToken] finds a whole token in a delimited list
//   - [FilterJobFeatures] keeps the owned tags of an ampersand-separated job request
//   - [Reconcile] merges detected tags into a node's list under a [Policy]
//   - [Check] tells whether a report satisfies the owned tags of a request
//
// # ISA tables
//
// Which extensions are reported depends on the [ISATable] in use.
// [ISATableV1] predates ssse3 support, [ISATableV2] includes it and is the
// default. Custom tables can be built with [NewISATable] or declared in the
// YAML [Config].
package cpufeatures
