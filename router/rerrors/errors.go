package rerrors

import "fmt"

var ErrComplexQuery = fmt.Errorf("too complex query to route")
var ErrCopyNotRoutable = fmt.Errorf("copy statements are routed by the copy subsystem")
var ErrNoSnapshot = fmt.Errorf("no sharding rule snapshot published")
var ErrRouteCacheFault = fmt.Errorf("route cache fault")
