package cli

import (
	"context"
	"fmt"
	"os"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) login(ctx context.Context) {
	email, err := getSimpleText(a.reader, "Enter email:", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer wipe(password)

	if err := a.core.Login(ctx, email, string(password)); err != nil {
		fmt.Println("Login failed:", err)
		return
	}

	a.email = email
	fmt.Println("Success!")
}

func (a *App) logout(ctx context.Context) {
	if err := a.core.Logout(ctx); err != nil {
		fmt.Println("Error:", err)
		return
	}
	a.email = ""
	fmt.Println("Logged out")
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
