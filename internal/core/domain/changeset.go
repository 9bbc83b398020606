package domain

// Changeset groups every write of a single operation. Repositories apply it in one
// transaction, so either all of it is persisted or none of it is.
type Changeset struct {
	Offers                  []Offer
	Vaults                  []Vault
	CheckoutRequests        []CheckoutRequest
	CustodianUpdates        []CustodianUpdateRequest
	DeletedCustodianUpdates []SubjectId
	Auctions                []FractionAuction
}

func (c *Changeset) AddOffer(o Offer) {
	c.Offers = append(c.Offers, o)
}

// AddVault records v, replacing any earlier version of the same vault.
func (c *Changeset) AddVault(v Vault) {
	for i, vault := range c.Vaults {
		if vault.Subject == v.Subject {
			c.Vaults[i] = v
			return
		}
	}
	c.Vaults = append(c.Vaults, v)
}

func (c *Changeset) AddCheckoutRequest(r CheckoutRequest) {
	for i, req := range c.CheckoutRequests {
		if req.TokenId == r.TokenId {
			c.CheckoutRequests[i] = r
			return
		}
	}
	c.CheckoutRequests = append(c.CheckoutRequests, r)
}

func (c *Changeset) AddCustodianUpdate(r CustodianUpdateRequest) {
	c.CustodianUpdates = append(c.CustodianUpdates, r)
}

func (c *Changeset) DeleteCustodianUpdate(subject SubjectId) {
	c.DeletedCustodianUpdates = append(c.DeletedCustodianUpdates, subject)
}

func (c *Changeset) AddAuction(a FractionAuction) {
	for i, auction := range c.Auctions {
		if auction.OfferId == a.OfferId {
			c.Auctions[i] = a
			return
		}
	}
	c.Auctions = append(c.Auctions, a)
}

func (c Changeset) IsEmpty() bool {
	return len(c.Offers) == 0 && len(c.Vaults) == 0 && len(c.CheckoutRequests) == 0 &&
		len(c.CustodianUpdates) == 0 && len(c.DeletedCustodianUpdates) == 0 &&
		len(c.Auctions) == 0
}
