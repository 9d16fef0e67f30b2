package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "v4linkd", "daemon":
		return daemonTemplate, nil
	case "bundle":
		return bundleTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `name = "v4linkd"
# tcp | serial | stdio
transport = "tcp"
listen_addr = "127.0.0.1:7400"
# empty disables the admin HTTP server
admin_addr = "127.0.0.1:7401"
cors_origins = ["http://localhost:3000"]
capacity = 512
# empty disables the frame journal
journal_path = "v4linkd.db"

[serial]
port = "/dev/ttyUSB0"
baud_rate = 115200

[vm]
memory_size = 65536
data_stack = 256
return_stack = 64
max_steps = 1000000
`

const bundleTemplate = `# Words are numbered from 0 in file order. CALL operands in hex code refer to
# those numbers and are relocated by the device when the bundle is loaded.
main = "76 03 50 01 00 51"

[[words]]
name = "SQ"
code = "01 12 51"

[[words]]
name = "QUAD"
code = "50 00 00 50 00 00 51"
`
