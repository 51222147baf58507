// Command tokengen mints an access token for a note owner using the server's
// secret. It reads the same config file and flags as the server, plus -o.
//
//	tokengen -o alice -s secretKey -t 60
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/dmitrijs2005/notesync/internal/server/config"
)

func main() {
	var owner string
	err := flagx.ParseSubset("tokengen", os.Args[1:], []string{"-o"}, func(fs *flag.FlagSet) {
		fs.StringVar(&owner, "o", "", "owner id")
	})
	if err != nil || owner == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -o <owner> [-s secret] [-t minutes] [-c config.json]")
		os.Exit(2)
	}

	cfg := config.LoadConfig()

	token, err := auth.GenerateToken(owner, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
