package main

import (
	"github.com/zmap/sshkex/bin"
)

func main() {
	bin.SSHKexMain()
}
