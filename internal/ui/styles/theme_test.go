// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewThemeVariants(t *testing.T) {
	dark := NewTheme("dark")
	if !dark.IsDark {
		t.Error("NewTheme(dark).IsDark = false")
	}
	if dark.GlamourStyle() != "dark" {
		t.Errorf("GlamourStyle() = %q", dark.GlamourStyle())
	}

	light := NewTheme("light")
	if light.IsDark {
		t.Error("NewTheme(light).IsDark = true")
	}
	if light.GlamourStyle() != "light" {
		t.Errorf("GlamourStyle() = %q", light.GlamourStyle())
	}

	// Unknown variants fall back to dark.
	if !NewTheme("solarized").IsDark {
		t.Error("unknown variant should default to dark")
	}
}

func TestSetSize(t *testing.T) {
	th := NewTheme("dark")
	th.SetSize(120, 40)
	if th.Width != 120 || th.Height != 40 {
		t.Errorf("size = %dx%d", th.Width, th.Height)
	}
}
