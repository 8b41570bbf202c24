package main

import "testing"

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "loom" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "loom")
	}

	// Every subcommand registers itself in init.
	expected := map[string]bool{
		"serve":    false,
		"validate": false,
		"version":  false,
	}
	for _, sub := range rootCmd.Commands() {
		if _, ok := expected[sub.Name()]; ok {
			expected[sub.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	configFlag := rootCmd.PersistentFlags().Lookup("config")
	if configFlag == nil {
		t.Fatal("persistent flag --config not registered")
	}
	if configFlag.DefValue != "config.yaml" {
		t.Errorf("config flag default = %q, want %q", configFlag.DefValue, "config.yaml")
	}
	if configFlag.Shorthand != "c" {
		t.Errorf("config flag shorthand = %q, want %q", configFlag.Shorthand, "c")
	}

	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	if verboseFlag == nil {
		t.Fatal("persistent flag --verbose not registered")
	}
	if verboseFlag.Shorthand != "v" {
		t.Errorf("verbose flag shorthand = %q, want %q", verboseFlag.Shorthand, "v")
	}
}

func TestServeFlags(t *testing.T) {
	for _, name := range []string{"listen", "log-level", "dry-run"} {
		if serveCmd.Flags().Lookup(name) == nil {
			t.Errorf("serve flag --%s not registered", name)
		}
	}
}

func TestDescribeBackend(t *testing.T) {
	tests := []struct {
		name       string
		backend    string
		sqlitePath string
		expected   string
	}{
		{
			name:       "sqlite with path",
			backend:    "sqlite",
			sqlitePath: "data/loom.db",
			expected:   "sqlite (data/loom.db)",
		},
		{
			name:     "empty backend defaults to sqlite",
			backend:  "",
			expected: "sqlite",
		},
		{
			name:       "postgres ignores sqlite path",
			backend:    "postgres",
			sqlitePath: "data/loom.db",
			expected:   "postgres",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeBackend(tt.backend, tt.sqlitePath)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
