// Package fakerar installs a shell script that mimics the rar program, so the
// RAR-family backend can be tested without the proprietary binary.
//
// Members of an archive are kept as files in the "<archive>.d" directory and
// the arguments of add runs are logged to "<archive>.args". Setting the
// FAKE_RAR_SLEEP environment variable delays every run by that many seconds.
package fakerar

import (
	"os"
	"path/filepath"

	"github.com/Defacto2/archivist/command"
)

// SleepEnv is the environment variable read by the script.
const SleepEnv = "FAKE_RAR_SLEEP"

const script = `#!/bin/sh
if [ -n "$FAKE_RAR_SLEEP" ]; then sleep "$FAKE_RAR_SLEEP"; fi
cmd="$1"; shift
arc=""; member=""; out=""; ap=""
for a in "$@"; do
	case "$a" in
	-op*) out="${a#-op}" ;;
	-ap*) ap="${a#-ap}" ;;
	-*) ;;
	*) if [ -z "$arc" ]; then arc="$a"; else member="$a"; fi ;;
	esac
done
case "$cmd" in
lb)
	if [ ! -f "$arc" ]; then echo "Cannot open $arc" >&2; exit 6; fi
	echo ""
	[ -d "$arc.d" ] || exit 0
	cd "$arc.d" && find . -mindepth 1 | sed 's#^\./##'
	;;
vt)
	if [ ! -f "$arc" ]; then echo "Cannot open $arc" >&2; exit 6; fi
	[ -d "$arc.d" ] || exit 0
	cd "$arc.d" && find . -mindepth 1 | sed 's#^\./##' | sort | while read -r p; do
		echo "        Name: $p"
		if [ -d "$p" ]; then
			echo "        Type: Directory"
		else
			echo "        Type: File"
			echo "        Size: $(wc -c < "$p" | tr -d ' ')"
		fi
		echo ""
	done
	;;
x)
	if [ -f "$arc.d/$member" ]; then cp "$arc.d/$member" "$out"; exit 0; fi
	echo "No files to extract"
	exit 10
	;;
a)
	echo "$*" >> "$arc.args"
	mkdir -p "$arc.d/$ap"
	cp "$member" "$arc.d/$ap/"
	touch "$arc"
	echo "Adding $member OK"
	echo "a warning" >&2
	exit 1
	;;
esac
`

// Install writes the script into a new temporary folder, named as the rar
// program of the host, and returns the folder. The caller removes it.
func Install() (string, error) {
	dir, err := os.MkdirTemp("", "fakerar-")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, command.Name("")), []byte(script), 0o755); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}
