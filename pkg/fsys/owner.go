package fsys

import (
	"os/user"
	"strconv"
)

// resolveOwner resolves user/group names (or numeric ids) to numeric
// uid/gid, leaving either side unchanged (-1) if not provided.
func resolveOwner(userName, groupName string) (uid, gid int, err error) {
	uid, gid = -1, -1

	if userName != "" {
		if n, convErr := strconv.Atoi(userName); convErr == nil {
			uid = n
		} else {
			u, lookErr := user.Lookup(userName)
			if lookErr != nil {
				return -1, -1, lookErr
			}
			uid, err = strconv.Atoi(u.Uid)
			if err != nil {
				return -1, -1, err
			}
		}
	}

	if groupName != "" {
		if n, convErr := strconv.Atoi(groupName); convErr == nil {
			gid = n
		} else {
			g, lookErr := user.LookupGroup(groupName)
			if lookErr != nil {
				return -1, -1, lookErr
			}
			gid, err = strconv.Atoi(g.Gid)
			if err != nil {
				return -1, -1, err
			}
		}
	}

	return uid, gid, nil
}
