package main

import "testing"

func TestBuildRootCmd(t *testing.T) {
	cmd := buildRootCmd()
	if cmd.Use != "haya" {
		t.Fatalf("root use = %q", cmd.Use)
	}
	var hasServe bool
	for _, sub := range cmd.Commands() {
		if sub.Use == "serve" {
			hasServe = true
		}
	}
	if !hasServe {
		t.Fatal("serve subcommand missing")
	}
}
