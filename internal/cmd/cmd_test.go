package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/westphae/dmp9250/config"
	"github.com/westphae/dmp9250/mpu9250"
)

func TestCommands(t *testing.T) {
	t.Setenv(config.EnvPrefix+"_CONFIG", "")
	root := getRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)

	csv := filepath.Join(t.TempDir(), "run.csv")
	root.SetArgs([]string{"read", "--sim", "level", "-n", "2", "--rate", "200", "--record", csv})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	var lines int
	for sc := bufio.NewScanner(&out); sc.Scan(); lines++ {
		var r mpu9250.Reading
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
	}
	if lines != 2 {
		t.Errorf("%d readings printed, want 2", lines)
	}
	b, err := os.ReadFile(csv)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(b, []byte("\n")); n != 3 {
		t.Errorf("%d lines recorded, want 3", n)
	}

	out.Reset()
	root.SetArgs([]string{"init", "--print"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "fifo_rate: 100") {
		t.Errorf("template:\n%s", out.String())
	}
}
