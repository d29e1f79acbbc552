package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/offlinestore/bootstrap"
	"github.com/fulldump/offlinestore/configuration"
)

var VERSION = "dev"

var banner = `
        __  __ _ _                _
  ___  / _|/ _| (_)_ __   ___ ___| |_ ___  _ __ ___
 / _ \| |_| |_| | | '_ \ / _ / __| __/ _ \| '__/ _ \
| (_) |  _|  _| | | | | |  __\__ \ || (_) | | |  __/
 \___/|_| |_| |_|_|_| |_|\___|___/\__\___/|_|  \___|
                                   version ` + VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(c)

	if c.Version {
		fmt.Println("Version:", VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	bootstrap.VERSION = VERSION
	start, _, err := bootstrap.Bootstrap(c)
	if err != nil {
		fmt.Println("ERROR:", err.Error())
		os.Exit(-1)
	}

	start()
}
