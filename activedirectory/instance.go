// Package activedirectory is the LDAP implementation of the directory read
// port. It fetches one group's reference state per reconciliation pass with
// paged searches against a domain controller.
package activedirectory

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

type ActiveDirectoryInstance struct {
	BaseDn               string
	DomainControllerFQDN string
	PageSize             uint32
	ldapConnection       *ldap.Conn
	logger               *zap.SugaredLogger
}

func NewActiveDirectoryInstance(baseDn string, domainControllerFQDN string, pageSize uint32, logger *zap.SugaredLogger) *ActiveDirectoryInstance {
	return &ActiveDirectoryInstance{
		BaseDn:               baseDn,
		DomainControllerFQDN: domainControllerFQDN,
		PageSize:             pageSize,
		logger:               logger,
	}
}

// Connect to the Active Directory Domain Controller
func (ad *ActiveDirectoryInstance) Connect(username, password string) error {
	bindString := fmt.Sprintf("ldap://%s:389", ad.DomainControllerFQDN)

	conn, err := ldap.DialURL(bindString)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to LDAP server %s", bindString)
	}

	// TODO: LDAPS, IWA/GSSAPI, etc
	if err := conn.Bind(username, password); err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to bind to LDAP server")
	}

	res, err := conn.WhoAmI(nil)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to call WhoAmI()")
	}

	ad.ldapConnection = conn
	ad.logger.Infow("authenticated to LDAP server", "server", bindString, "authzid", res.AuthzID)
	return nil
}

// Close tears down the LDAP connection.
func (ad *ActiveDirectoryInstance) Close() {
	if ad.ldapConnection != nil {
		ad.ldapConnection.Close()
		ad.ldapConnection = nil
	}
}

// fetchPagedEntries performs a paged LDAP search and invokes the callback
// per page. The context is checked between pages; go-ldap searches are not
// cancelable mid-flight.
func (ad *ActiveDirectoryInstance) fetchPagedEntries(
	ctx context.Context, filter string, attributes []string, processPage func(entries []*ldap.Entry) error,
) error {
	pageControl := ldap.NewControlPaging(ad.PageSize)
	pageRequest := ldap.NewSearchRequest(
		ad.BaseDn,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		[]ldap.Control{pageControl},
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		searchResults, err := ad.ldapConnection.Search(pageRequest)
		if err != nil {
			return errors.Wrap(err, "LDAP search failed")
		}

		if err := processPage(searchResults.Entries); err != nil {
			return errors.Wrap(err, "processing page failed")
		}

		pagingResult := ldap.FindControl(searchResults.Controls, ldap.ControlTypePaging)
		if pagingResult == nil {
			break
		}
		cookie := pagingResult.(*ldap.ControlPaging).Cookie
		if len(cookie) == 0 {
			break // No more pages
		}
		pageControl.SetCookie(cookie)
	}

	return nil
}
