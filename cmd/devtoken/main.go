// Command devtoken prints a bearer token for local calls against the API,
// signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "user id (sub claim)")
	role := flag.String("role", string(model.RoleStudent), "STUDENT, STAFF or ADMIN")
	beneficiary := flag.Uint64("beneficiary", 0, "linked beneficiary id, 0 for none")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	p := model.Principal{UserID: *user, Role: model.Role(strings.ToUpper(*role))}
	if *beneficiary > 0 {
		p.BeneficiaryID = beneficiary
	}
	tok, err := utils.NewAccessToken(secret, p, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
