package main

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"

	"offsider/internal/config"
	"offsider/internal/db"
	"offsider/internal/migrate"
	"offsider/internal/server"
)

// Scratch harness: load the real config files if present, boot the handler
// in-process on a throwaway data dir and walk one login. Run from the repo
// root.
func main() {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		panic(err)
	}
	rigs, err := config.LoadRigs(cfg.Auth.RigsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
		rigs = []config.Rig{{ID: "default", Title: "Check Rig"}}
	}
	dir, err := os.MkdirTemp("", "offsider-check")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	stores := db.NewStores(dir, migrate.Migrate)
	defer stores.Close()
	h, err := server.New(server.Config{Stores: stores, Rigs: rigs, Secret: "check-secret", BasePath: cfg.Server.BasePath})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	rig := rigs[0]
	res, err := client.PostForm(ts.URL+"/auth/login", url.Values{
		"actor":  {"tester"},
		"rig_id": {rig.ID},
		"pin":    {rig.PIN},
	})
	if err != nil {
		panic(err)
	}
	res.Body.Close()
	fmt.Printf("login rig=%s status=%d landed=%s\n", rig.ID, res.StatusCode, res.Request.URL.Path)

	res, err = client.Get(ts.URL + cfg.Server.BasePath + "/health")
	if err != nil {
		panic(err)
	}
	res.Body.Close()
	fmt.Printf("health status=%d\n", res.StatusCode)
}
