package txn

import "os"

func osOpenAppendFlags() int {
	return os.O_CREATE | os.O_RDWR | os.O_APPEND
}
