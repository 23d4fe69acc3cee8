package tuple

import "os"

func writeFlags() int {
	return os.O_CREATE | os.O_RDWR
}
