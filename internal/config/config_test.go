package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cartpilot/cartpilot/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	path := writeFile(t, "config.yml", `
retailer: coles
script_dir: /tmp/scripts
browser:
  page_load_wait_ms: 500
writer:
  type: file
  filepath: summary.json
profiles:
  - name: coles
    home_url: https://example.coles.com.au/
    allowed_hosts: [coles.com.au]
`)
	c, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Retailer != types.RetailerColes || c.ScriptDir != "/tmp/scripts" {
		t.Errorf("config mangled: %+v", c)
	}
	if c.Browser.PageLoadWaitMS != 500 {
		t.Errorf("browser config not read: %+v", c.Browser)
	}

	p, err := c.Profile(types.RetailerColes)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if p.HomeURL != "https://example.coles.com.au/" {
		t.Errorf("override profile not used: %+v", p)
	}
}

func TestNewConfigDefaults(t *testing.T) {
	c, err := NewConfig("")
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Retailer != types.RetailerWoolworths {
		t.Errorf("default retailer = %q; want woolworths", c.Retailer)
	}

	p, err := c.Profile(types.RetailerWoolworths)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if len(p.TileSelectors) == 0 {
		t.Error("built-in profile must carry tile selectors")
	}
	if _, err := c.Profile(types.Retailer("aldi")); err == nil {
		t.Error("unknown retailer must be an error")
	}
}

func TestLoadShoppingList(t *testing.T) {
	path := writeFile(t, "list.yml", `
items:
  - name: 2kg Chicken Breast
    quantity: 1
  - name: milk
`)
	items, err := LoadShoppingList(path)
	if err != nil {
		t.Fatalf("LoadShoppingList returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("loaded %d items; want 2", len(items))
	}
	if items[1].Quantity != 1 {
		t.Errorf("missing quantity must default to 1, got %d", items[1].Quantity)
	}
}

func TestLoadShoppingListBareList(t *testing.T) {
	path := writeFile(t, "list.yml", `
- name: bread
  quantity: 2
`)
	items, err := LoadShoppingList(path)
	if err != nil {
		t.Fatalf("LoadShoppingList returned error: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Errorf("items = %+v", items)
	}
}

func TestLoadShoppingListEmpty(t *testing.T) {
	path := writeFile(t, "list.yml", "items: []\n")
	if _, err := LoadShoppingList(path); err == nil {
		t.Error("empty list must be an error")
	}
}
